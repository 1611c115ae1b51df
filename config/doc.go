// Package config loads proccache settings from an HCL file.
//
// Every block and attribute is optional; anything not set keeps the value
// from Default. Expressions may reference the process environment through
// the env object:
//
//	cache {
//	  salt     = "v2"
//	  platform = { OSFamily = "linux", ISA = "amd64" }
//
//	  # Share entries across checkouts; only declared inputs are keyed.
//	  bind_root = false
//	}
//
//	store {
//	  root = "${env.HOME}/.cache/proccache"
//	}
//
//	guard {
//	  timeout           = "2s"
//	  breaker_threshold = 5
//	}
//
//	executor {
//	  inherit_env = ["PATH", "HOME"]
//	}
//
//	observe {
//	  logging {
//	    level = "info"
//	  }
//	}
package config
