// Package httpclient provides the streaming HTTP client consumed by the
// download worker. Bodies are streamed, never buffered, and there is no
// overall request timeout so a paused download can hold its connection
// open. Error taxonomy is sentinel-based for callers that need to
// distinguish not-found from server errors.
package httpclient
