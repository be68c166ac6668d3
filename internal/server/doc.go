// Package server exposes document flattening as MCP (Model Context Protocol)
// tools over stdio.
//
// Requests arrive as JSON-RPC 2.0, one per line on stdin; responses are
// written one per line to stdout. Logs must therefore go to stderr.
//
// Methods: initialize, notifications/initialized, tools/list, tools/call
// and ping.
//
// # Tools
//
// Image basics:
//   - image_load: format and dimensions, optional base64 thumbnail
//   - image_dimensions: width and height
//   - image_edge_detect: the binary edge map used for boundary search
//   - image_compare: mean absolute difference between two images
//
// Documents:
//   - document_detect_boundary: ordered page corners, optional overlay
//   - document_flatten: the rectified page, inline or written to a file
//   - document_crop_divider: content right of a vertical divider line
//   - document_ocr: flatten, then read the text with Tesseract
//
// # Errors
//
// A failed tool call is a JSON-RPC error with code -32000. Its data holds
// the failure kind (image_decode, no_document_boundary,
// ambiguous_corner_ordering, degenerate_transform, invalid_input or
// internal) so clients can branch without parsing messages.
//
// # Usage
//
//	srv := server.New(server.WithFlattener(f), server.WithLogger(logger))
//	if err := srv.Run(); err != nil {
//	    return err
//	}
package server
