// Package pipeline turns a synced three.js checkout into the served artifact
// tree.
//
// A full build installs dependencies when needed, runs the project build and
// documentation commands, copies the published directories into the serving
// root and post-processes them. When any of that fails the caller may fall back
// to a minimal build, which skips every external command and publishes the
// prebuilt output that ships with the checkout.
package pipeline
