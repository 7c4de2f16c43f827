package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/livedoc/internal/queryir"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes. Validation failures keep their queryir code (E2xx).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path or query not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeCollection = "E301" // Missing collection
	ErrCodeClause     = "E302" // Malformed where clause
	ErrCodeValue      = "E303" // Bad clause value (e.g. float)
	ErrCodeOrder      = "E304" // Malformed order key
	ErrCodeWindow     = "E305" // Malformed window
)

// LoadResult holds the compiled queries of one CUE package, sorted by name.
type LoadResult struct {
	Queries   []*queryir.Spec
	FileCount int
}

// Lookup returns the named query.
func (r *LoadResult) Lookup(name string) (*queryir.Spec, bool) {
	for _, q := range r.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return nil, false
}

// LoadError is one problem found while loading queries.
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

// LoadQueries loads the CUE package in dir and compiles and validates every
// entry of its top-level query struct.
func LoadQueries(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("queries directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing queries directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result, errs := compileAll(value, mode)
	if result != nil {
		result.FileCount = len(cueFiles)
	}
	return result, errs
}

// LoadFile compiles the queries of a single CUE file.
func LoadFile(path string, mode LoadMode) (*LoadResult, []error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", path, err)}}
	}
	value := cuecontext.New().CompileBytes(src, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	result, errs := compileAll(value, mode)
	if result != nil {
		result.FileCount = 1
	}
	return result, errs
}

// LoadQuery loads dir and returns the named query, or the first error.
func LoadQuery(dir, name string) (*queryir.Spec, error) {
	result, errs := LoadQueries(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	spec, ok := result.Lookup(name)
	if !ok {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("query %q not defined in %s", name, dir)}
	}
	return spec, nil
}

func compileAll(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	result := &LoadResult{}

	queriesVal := value.LookupPath(cue.ParsePath("query"))
	if !queriesVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: "no queries found"}}
	}

	iter, err := queriesVal.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating queries: %v", err)}}
	}
	for iter.Next() {
		qv := iter.Value()
		spec, err := CompileQuery(qv)
		if err != nil {
			errs = append(errs, convertCompileError(err, "query."+iter.Selector().String()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		if verrs := queryir.Validate(spec); len(verrs) > 0 {
			for _, ve := range verrs {
				errs = append(errs, &LoadError{
					Code:    ve.Code,
					Message: fmt.Sprintf("query %s: %s: %s", spec.Name, ve.Field, ve.Message),
					Pos:     qv.Pos(),
				})
			}
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Queries = append(result.Queries, spec)
	}

	sort.Slice(result.Queries, func(i, j int) bool {
		return result.Queries[i].Name < result.Queries[j].Name
	})
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "collection":
		return ErrCodeCollection
	case "where", "where.field", "where.op", "where.prefix", "where.exists":
		return ErrCodeClause
	case "where.value":
		return ErrCodeValue
	case "order", "order.field":
		return ErrCodeOrder
	case "window.start", "window.length":
		return ErrCodeWindow
	default:
		return ErrCodeGeneric
	}
}

// CompileSource compiles CUE source holding the body of one query (its
// collection, where, order and window fields) under name, and validates it.
func CompileSource(name, src string) (*queryir.Spec, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(name+".cue"))
	spec, err := CompileQuery(v)
	if err != nil {
		return nil, err
	}
	spec.Name = name
	if verrs := queryir.Validate(spec); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, fmt.Errorf("query %s: %w", name, errors.Join(errs...))
	}
	return spec, nil
}
