// Package generation defines the boundary to the AI services the pipelines
// call: a content generator that writes the summary text and an image
// generator that draws avatars. Concrete clients live under internal/platform.
package generation
