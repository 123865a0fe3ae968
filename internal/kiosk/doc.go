// Package kiosk serves the dryer-floor kiosk's web bundle.
//
// The bundle is built separately and installed into a directory named by
// api.kiosk_dir. Until one is installed, an embedded placeholder page tells
// the operator where to put it.
//
// Paths without a file extension fall back to index.html so the bundle's
// client-side routes (dashboard, dryer detail, batch history) survive a
// reload. Missing assets with an extension are a plain 404.
package kiosk
