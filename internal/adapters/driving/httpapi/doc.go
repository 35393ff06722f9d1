// Package httpapi serves the extraction pipeline over HTTP.
//
// Routes:
//
//	POST /v1/transform             STIX XML body, JSON records per object type
//	GET  /v1/runs                  stored runs, newest first
//	GET  /v1/runs/{id}/records     stored records of a run (?type=Address)
//	GET  /healthz                  liveness
//	GET  /metrics                  Prometheus metrics
//
// The run routes are only mounted when a record store is configured.
package httpapi
