// Package fixtures seeds a database from YAML files, one file per entity
// table, through the generated create controllers so fixtures are validated
// and resolved exactly like API payloads.
//
// A fixture file is a list of records. Two reserved keys select the caller a
// record is created as:
//
//	- _caller: ann
//	  _permissions: [admin]
//	  name: Rex
//	  owner: ann
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/crud"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
)

const (
	callerKey      = "_caller"
	permissionsKey = "_permissions"
)

// Loader creates fixture records
type Loader struct {
	controllers *crud.Controllers
	logger      *zap.Logger
}

// NewLoader creates a loader over a controller set
func NewLoader(controllers *crud.Controllers, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{controllers: controllers, logger: logger}
}

// LoadDir loads "<table>.yaml" for every entity in dependency order. Missing
// files are skipped. It returns the number of records created.
func (l *Loader) LoadDir(ctx context.Context, dir string) (int, error) {
	registry := l.controllers.Engine().Registry()
	order, err := registry.DependencyOrder()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, name := range order {
		e, _ := registry.Get(name)
		path := filepath.Join(dir, e.Table+".yaml")

		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return total, fmt.Errorf("reading %s: %w", path, err)
		}

		n, err := l.Load(ctx, e, data)
		total += n
		if err != nil {
			return total, fmt.Errorf("%s: %w", path, err)
		}
		l.logger.Info("fixtures loaded", zap.String("entity", e.Name), zap.Int("records", n))
	}
	return total, nil
}

// Load creates every record of one fixture document
func (l *Loader) Load(ctx context.Context, e *schema.Entity, data []byte) (int, error) {
	var records []map[string]interface{}
	if err := yaml.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parsing fixtures: %w", err)
	}

	ctrl, err := l.controllers.Create(e.Name)
	if err != nil {
		return 0, err
	}

	for i, record := range records {
		caller, err := callerOf(record)
		if err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
		formatTimes(e, record)

		body, err := json.Marshal(record)
		if err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
		input, err := ctrl.Input().Decode(body)
		if err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}

		if _, err := ctrl.Create(ctx, caller, input); err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return len(records), nil
}

// callerOf removes the reserved keys from record and returns the caller they
// describe
func callerOf(record map[string]interface{}) (access.Caller, error) {
	caller := access.Anonymous

	if v, ok := record[callerKey]; ok {
		delete(record, callerKey)
		id, isString := v.(string)
		if !isString {
			return caller, fmt.Errorf("%s must be a string", callerKey)
		}
		caller.ID = id
	}

	if v, ok := record[permissionsKey]; ok {
		delete(record, permissionsKey)
		list, isList := v.([]interface{})
		if !isList {
			return caller, fmt.Errorf("%s must be a list", permissionsKey)
		}
		for _, p := range list {
			name, isString := p.(string)
			if !isString {
				return caller, fmt.Errorf("%s must be a list of strings", permissionsKey)
			}
			caller.Permissions = append(caller.Permissions, name)
		}
	}
	return caller, nil
}

// formatTimes renders the timestamps yaml decodes from unquoted dates in the
// wire format of the field they are given for
func formatTimes(e *schema.Entity, record map[string]interface{}) {
	for name, v := range record {
		tm, ok := v.(time.Time)
		if !ok {
			continue
		}
		if f, found := e.Field(name); found && f.Type == schema.TypeDate {
			record[name] = tm.Format(shape.DateLayout)
			continue
		}
		record[name] = tm.Format(time.RFC3339)
	}
}
