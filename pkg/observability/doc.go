/*
Package observability turns executor lifecycle events and processing outcomes
into Prometheus metrics and structured log lines.

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := observability.MergeHooks(metrics.Hooks(), observability.LogHooks(logger))

	exec := runtime.New(runtime.WithLifecycleHooks(hooks))
	proc := runner.NewProcessor(flows, sessions, exec, runner.WithObserver(metrics))
*/
package observability
