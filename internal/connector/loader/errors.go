package loader

import cherrors "github.com/connectorhost/connectorhost/pkg/errors"

var (
	errMissingField = cherrors.New(cherrors.ErrorTypeValidationFailed, "manifest is missing a required field (id, type, version, entry)")
	errUnknownEntry = cherrors.New(cherrors.ErrorTypeUnknownConnectorType, "manifest entry is not registered in the compile-time registrar")
)

func errUnsetEnvVar(name string) error {
	return cherrors.Newf(cherrors.ErrorTypeConfigInvalid, "environment variable %q is not set", name)
}
