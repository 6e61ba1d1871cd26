// Package config loads the agent section of the beacon config file.
//
//	agent:
//	  server_endpoint: "localhost:50051"
//	  buffer_size: 1000
//	  feed: "-"            # JSON-lines presence feed; "-" reads stdin
//	  send_timeout: 10s
//	  log_level: info
//	  server_auth:
//	    mode: apikey       # mtls | apikey | none
//	    key_env: BEACON_API_KEY
//	    header: x-api-key
//	    cert_file: ""      # mtls client certificate
//	    key_file: ""
//	    ca_file: ""        # server CA for mtls, or TLS with apikey
//
// The server section of the same file is ignored here.
package config
