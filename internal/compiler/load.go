package compiler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/catalogmigrate/internal/migrate"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the declarations found in a directory.
type LoadResult struct {
	Declarations []*Declaration
	FileCount    int // Number of .cue/.yaml/.yml files found
}

// Load error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No migration files found
	ErrCodeLoadFailed  = "E004" // File read or parse failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
)

// LoadError represents an error that occurred while loading migration files.
type LoadError struct {
	Code    string
	Message string
	Pos     Position
}

func (e *LoadError) Error() string {
	if where := e.Pos.String(); where != "" {
		return fmt.Sprintf("%s: %s: %s", where, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir reads every CUE and YAML migration in dir.
//
// All .cue files are unified into one value before the "migration" struct is
// read, so a migration may be split across files. Each .yaml/.yml file holds
// one migration. Declarations are returned in id order.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("migrations directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing migrations directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, yamlFiles, err := FindMigrationFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles)+len(yamlFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no migration files found in %s", dir)}}
	}

	result := &LoadResult{FileCount: len(cueFiles) + len(yamlFiles)}
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	if len(cueFiles) > 0 {
		decls, err := loadCUE(cueFiles)
		if err != nil && fail(err) {
			return result, errs
		}
		result.Declarations = append(result.Declarations, decls...)
	}

	for _, path := range yamlFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			if fail(&LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Pos: Position{File: path}}) {
				return result, errs
			}
			continue
		}
		decl, err := CompileYAML(path, data)
		if err != nil {
			if fail(err) {
				return result, errs
			}
			continue
		}
		result.Declarations = append(result.Declarations, decl)
	}

	slices.SortStableFunc(result.Declarations, func(a, b *Declaration) int {
		return migrate.CompareIDs(a.ID, b.ID)
	})
	return result, errs
}

func loadCUE(files []string) ([]*Declaration, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString("{}")
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Pos: Position{File: path}}
		}
		fileVal := ctx.CompileBytes(data, cue.Filename(path))
		if err := fileVal.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		value = value.Unify(fileVal)
	}
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return CompileCUE(value)
}

// FindMigrationFiles walks dir and returns the CUE and YAML file paths in
// lexical order.
func FindMigrationFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, path)
		}
		return nil
	})
	return cueFiles, yamlFiles, err
}
