package conf

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of validation errors
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the settings struct and returns an error if any issues are found
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateStorageSettings(&settings.Storage); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateBakeSettings(&settings.Bake); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(ws *WebServerSettings) error {
	if ws.Address == "" {
		return fmt.Errorf("webserver address must not be empty")
	}
	return nil
}

func validateStorageSettings(s *StorageSettings) error {
	switch s.Backend {
	case "minio":
		if s.Endpoint == "" {
			return fmt.Errorf("storage endpoint must not be empty for the minio backend")
		}
		if s.Bucket == "" {
			return fmt.Errorf("storage bucket must not be empty")
		}
	case "memory":
		// nothing to validate, in-process store for development and testing
	default:
		return fmt.Errorf("unsupported storage backend: %s", s.Backend)
	}
	return nil
}

func validateDatabaseSettings(d *DatabaseSettings) error {
	switch d.Type {
	case "sqlite":
		if d.SQLitePath == "" {
			return fmt.Errorf("database sqlitepath must not be empty")
		}
	case "mysql":
		if d.MySQLDSN == "" {
			return fmt.Errorf("database mysqldsn must not be empty")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", d.Type)
	}
	return nil
}

func validateBakeSettings(b *BakeSettings) error {
	if b.Workers < 1 {
		return fmt.Errorf("bake workers must be at least 1")
	}
	return nil
}
