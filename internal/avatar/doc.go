// Package avatar draws cartoon avatars for completed summaries. A batch
// sweeps abandoned avatar tasks, claims the newest pending ones and runs
// prompt building, image generation and re-upload for each.
package avatar
