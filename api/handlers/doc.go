/*
Package handlers implements the ragnar HTTP API.

# Endpoints

	GET    /health                        liveness
	GET    /ready                         readiness (database, checkpoint store)
	GET    /version                       build information
	GET    /api/v1/status                 components, graphs and pool stats
	POST   /api/v1/chat                   one business intelligence agent turn
	GET    /api/v1/chat/{id}              conversation history
	DELETE /api/v1/chat/{id}              forget a conversation
	POST   /api/v1/rag                    answer a question, or resume a run
	POST   /api/v1/research               research a topic, company or person
	GET    /api/v1/runs/{id}              latest checkpoint of a run
	GET    /api/v1/runs/{id}/checkpoints  checkpoint history of a run
	DELETE /api/v1/runs/{id}              drop a run's checkpoints
	GET    /api/v1/agent/ws               websocket: chat turns and engine events

# Responses

Every JSON endpoint answers with a Response envelope. Failed runs carry the
run ID and the last completed node in ErrorInfo so a client can resume or
inspect the run through /api/v1/runs/{id}. Error codes map to HTTP status
codes in one place, see WriteError.

# Streaming

EventHub is installed as a workflow.Observer on the engines. StreamHandler
subscribes each websocket connection to the runs it starts or names with
?run_id=, and delivers a run's events before its result frame.
*/
package handlers
