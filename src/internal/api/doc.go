// Package api provides the HTTP front-end of wlt.
//
// It serves a server-rendered selection page and a JSON API. Both identify
// the caller by the source address of the request; X-Forwarded-For and
// X-Real-IP are only honoured when web.trust_proxy_headers is set.
//
// # Endpoints
//
//	GET    /                        selection page
//	POST   /open                    form submit: group_<i>=<outlet>, hours=<n>
//	POST   /close                   form submit: reset the caller's entry
//	GET    /api/v1/outlets          outlet groups and durations
//	GET    /api/v1/status           the caller's current selection
//	PUT    /api/v1/outlets/{group}  select one outlet of a group
//	POST   /api/v1/selection        select one outlet per group
//	DELETE /api/v1/selection        reset the caller's entry
//	GET    /health                  mark map check
//
// # Response Format
//
// All successful JSON responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "validation_failed",
//	    "message": "Human-readable error message"
//	  }
//	}
//
// Request validation failures are 400, an unreachable or missing mark map is
// 503, an entry that kept changing under another writer is 409, other mark map
// failures are 502.
package api
