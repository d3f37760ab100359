package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rollcall/internal/ir"
)

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // generic or unknown error
	ErrCodeScanError   = "E002" // directory scan error
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeCompile     = "E007" // settings compile failed
)

// LoadError is a failure to turn a directory into settings.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is a loaded settings directory.
type Result struct {
	Dir       string
	Settings  *ir.Settings
	Positions Positions
	FileCount int
}

// Validate runs Validate over the loaded settings and attaches the line
// of the declaring field to each finding.
func (r *Result) Validate() []ir.ValidationError {
	errs := Validate(r.Settings)
	for i := range errs {
		if p, ok := r.lookup(errs[i].Field); ok {
			errs[i].Line = p.Line()
		}
	}
	return errs
}

// lookup finds the position of field or its closest declared parent.
func (r *Result) lookup(field string) (token.Pos, bool) {
	for f := field; f != ""; {
		if p, ok := r.Positions[f]; ok && p.IsValid() {
			return p, true
		}
		i := strings.LastIndexByte(f, '.')
		if i < 0 {
			break
		}
		f = f[:i]
	}
	return token.NoPos, false
}

// LoadDir loads and compiles the CUE package in dir.
func LoadDir(dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("settings directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing settings directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	settings, pos, err := Compile(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	return &Result{Dir: dir, Settings: settings, Positions: pos, FileCount: len(files)}, nil
}

// CompileString compiles settings from CUE source. Used for inline
// settings in scenarios and tests.
func CompileString(src string) (*ir.Settings, error) {
	v := cuecontext.New().CompileString(src)
	s, _, err := Compile(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindCUEFiles returns the .cue files directly inside dir. Subdirectories
// are separate CUE packages and are not part of the settings.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func convertCompileError(err error) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: ErrCodeCompile, Message: ce.Field + ": " + ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}
