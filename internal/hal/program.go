package hal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ProgramDescriptor names the code to load. Accelerator devices use Path;
// thread-pool devices use Kernel or, failing that, Name.
type ProgramDescriptor struct {
	Path   string
	Name   string
	Kernel Kernel
}

// Program is an immutable reference to code runnable on the PEs of one kind
// of backend. It carries no mutable state and may be run on several teams at
// once.
type Program struct {
	kind   Kind
	name   string
	path   string
	kernel Kernel
}

// Kind returns the backend kind the program was loaded for.
func (p *Program) Kind() Kind {
	return p.kind
}

// Name returns a human readable name for logs.
func (p *Program) Name() string {
	return p.name
}

// Path returns the image path of an accelerator program.
func (p *Program) Path() string {
	return p.path
}

func loadKernelProgram(desc ProgramDescriptor) (*Program, error) {
	const op = "program load"
	if desc.Kernel != nil {
		name := desc.Name
		if name == "" {
			name = "kernel"
		}
		return &Program{kind: KindThreadPool, name: name, kernel: desc.Kernel}, nil
	}
	if desc.Name != "" {
		k, ok := LookupKernel(desc.Name)
		if !ok {
			return nil, newError(op, ErrNotFound, "kernel %q is not registered", desc.Name)
		}
		return &Program{kind: KindThreadPool, name: desc.Name, kernel: k}, nil
	}
	if desc.Path != "" {
		return nil, newError(op, ErrIncompatibleFormat, "thread pool cannot run image %q", desc.Path)
	}
	return nil, newError(op, ErrInvalidArgument, "empty program descriptor")
}

func loadImageProgram(desc ProgramDescriptor) (*Program, error) {
	const op = "program load"
	if desc.Path == "" {
		if desc.Kernel != nil || desc.Name != "" {
			return nil, newError(op, ErrIncompatibleFormat, "accelerator needs an image path, got a kernel reference")
		}
		return nil, newError(op, ErrInvalidArgument, "empty program descriptor")
	}
	path, err := filepath.Abs(desc.Path)
	if err != nil {
		return nil, wrapError(op, ErrInvalidArgument, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, wrapError(op, ErrNotFound, err)
		}
		return nil, wrapError(op, ErrIOFailure, err)
	}
	if !st.Mode().IsRegular() {
		return nil, newError(op, ErrIncompatibleFormat, "%s is not a regular file", path)
	}
	if st.Mode().Perm()&0o111 == 0 {
		return nil, newError(op, ErrIncompatibleFormat, "%s is not executable", path)
	}
	name := desc.Name
	if name == "" {
		name = filepath.Base(path)
	}
	return &Program{kind: KindAccelerator, name: name, path: path}, nil
}

func (p *Program) String() string {
	if p.path != "" {
		return fmt.Sprintf("%s program %s (%s)", p.kind, p.name, p.path)
	}
	return fmt.Sprintf("%s program %s", p.kind, p.name)
}
