// Package config loads the presence service's YAML configuration.
//
// Values are layered: Default, then the YAML file, then PRESENCE_*
// environment variables, so secrets such as the router password
// (PRESENCE_ROUTER_PASSWORD) never have to be written to disk. Validate
// collects every problem into a single error.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	log.Info("polling router", "address", cfg.RouterAddress())
package config
