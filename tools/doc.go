// Package tools implements the operations exposed through the dispatcher:
// community search and lookup, escalated web search, and quota inspection.
//
// Handlers decode their argument objects with gjson, validate them, and
// return JSON documents as the text of the response envelope.
package tools
