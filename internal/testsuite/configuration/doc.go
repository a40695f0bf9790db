/*
Package configuration defines the input configuration of a stress run.

StressConfig is decoded by viper from flags, environment variables and an optional config file, then validated with
struct tags. Every key has a default, so an empty file is a valid configuration.

# Example YAML Configuration

	url: https://activetigger.example.org/api
	username: root
	password: secret
	stress:
	  workers: 10
	  duration: 15m
	  readinessTimeout: 3m
	  joinTimeout: 30s
	  projectReadyTimeout: 2m
	  jobStartTimeout: 1m
	  pollInterval: 3s
	  launchRate: 2
	  cleanupAttempts: 3
	  cleanupDelay: 1s
	  userRole: manager
	  baseModel: camembert/camembert-base
	  dataset: data/dataset.csv
	  columns:
	    id: id
	    text: [text]
	    label: label
	  project:
	    trainSize: 500
	    testSize: 50
	    language: fr
	    forceLabel: true
	  report: results/stress.yaml
*/
package configuration
