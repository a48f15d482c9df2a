// Package vk is a small client for the parts of the VK API the ingestion
// handlers consume: wall.getComments and wall.get. All calls made through one
// Client share a single rate limiter, so concurrent workers are spaced to the
// configured requests-per-second ceiling instead of firing together.
package vk
