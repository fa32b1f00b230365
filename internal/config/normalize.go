package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalog()
	c.normalizeLogging()
	c.Institution.Name = strings.TrimSpace(c.Institution.Name)
	c.Institution.Place = strings.TrimSpace(c.Institution.Place)
	c.DOI.Prefix = strings.TrimSpace(c.DOI.Prefix)
	c.Crossref.DepositorName = strings.TrimSpace(c.Crossref.DepositorName)
	c.Crossref.DepositorEmail = strings.TrimSpace(c.Crossref.DepositorEmail)
	c.Crossref.Registrant = strings.TrimSpace(c.Crossref.Registrant)
	c.Import.CollectionID = strings.TrimSpace(c.Import.CollectionID)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ProcessingDir, err = expandPath(c.Paths.ProcessingDir); err != nil {
		return fmt.Errorf("paths.processing_dir: %w", err)
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.MappingsFile, err = expandPath(c.Paths.MappingsFile); err != nil {
		return fmt.Errorf("paths.mappings_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	c.Catalog.Token = strings.TrimSpace(c.Catalog.Token)
	if c.Catalog.MaxAttempts <= 0 {
		c.Catalog.MaxAttempts = defaultCatalogMaxAttempts
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
