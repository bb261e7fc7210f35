/*
Package config loads execution model settings from YAML or JSON.

Config wraps a decoded document and offers typed accessors with defaults:

	cfg, err := config.FromFile("nodeflow.yaml")
	timeout := cfg.Sub("engine").Duration("wait_timeout", 10*time.Second)

Engine is the typed view of the "engine" section:

	engine, err := config.LoadEngine("nodeflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	opts, err := nodeflow.OptionsFromEngine(engine, logger)
	if err != nil {
	    log.Fatal(err)
	}
	model := nodeflow.NewExecutionModel(graph, opts...)

String values may reference environment variables as ${NAME} or
${NAME:-fallback}. LoadEngine resolves them; Config.Expand does the same
with any lookup function.

Durations accept Go duration strings ("250ms", "5s") or a number of seconds.
*/
package config
