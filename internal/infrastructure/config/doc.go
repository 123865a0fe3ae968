// Package config handles loading and validating Paddy Dryer configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields, role PINs and drying limits
//   - Default value handling
//
// Security Considerations:
//   - Role PINs may be given as Argon2id hashes (pin_hash) instead of plaintext
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
