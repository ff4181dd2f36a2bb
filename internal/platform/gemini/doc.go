// Package gemini implements generation.ContentGenerator on Google's Gemini API.
//
// The generator renders a prompt from the normalized platform stats and the
// requested style, asks the model for a JSON document constrained by a
// response schema, and maps the document onto domain.GeneratedContent.
//
// Transient API failures are retried with exponential backoff and jitter.
// Safety blocks and unparseable responses are permanent and returned at once,
// wrapped in the generation package's sentinel errors.
package gemini
