package spi

// ConnectorKey identifies a registered connector factory by type and
// version.
type ConnectorKey struct {
	Type    string
	Version string
}

// String renders the composite "type@version" key used by the Registry's
// internal maps.
func (k ConnectorKey) String() string {
	return k.Type + "@" + k.Version
}

// ConnectorInstance is a configured, initialized connector identified by a
// unique id. It is created once by the Loader (or explicit registration),
// lives for the process lifetime, and is never mutated afterward.
type ConnectorInstance struct {
	ID     string
	Key    ConnectorKey
	Config Config
	Impl   *Connector
}
