package config

const (
	defaultProcessingDir      = "~/etd/processing"
	defaultInboxDir           = "~/etd/inbox"
	defaultMappingsFile       = "~/.config/etddepositor/mappings.toml"
	defaultInstitutionName    = "Carleton University"
	defaultInstitutionPlace   = "Ottawa, Ontario"
	defaultDOIPrefix          = "10.22215"
	defaultDepositorName      = "Carleton University Library"
	defaultDepositorEmail     = "doi@library.carleton.ca"
	defaultRegistrant         = "Carleton University"
	defaultCatalogMaxAttempts = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProcessingDir: defaultProcessingDir,
			InboxDir:      defaultInboxDir,
			MappingsFile:  defaultMappingsFile,
		},
		Institution: Institution{
			Name:  defaultInstitutionName,
			Place: defaultInstitutionPlace,
		},
		DOI: DOI{
			Prefix: defaultDOIPrefix,
		},
		Crossref: Crossref{
			DepositorName:  defaultDepositorName,
			DepositorEmail: defaultDepositorEmail,
			Registrant:     defaultRegistrant,
		},
		Catalog: Catalog{
			MaxAttempts: defaultCatalogMaxAttempts,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
