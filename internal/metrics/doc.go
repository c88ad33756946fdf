/*
Package metrics records Prometheus metrics for the HTTP API, LLM calls,
workflow runs and the database pool.

A Collector is shared by the whole process:

  - as workflow.Observer it counts runs, node durations, node errors and
    routing decisions (with a forced label for guard-decided routes);
  - as llm.Recorder it counts completions, tokens and cost per model;
  - the HTTP middleware calls RecordHTTPRequest;
  - a ticker in the server feeds RecordDBConnections from sql.DBStats.
*/
package metrics
