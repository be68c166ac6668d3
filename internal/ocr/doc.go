// Package ocr reads text off a flattened page with Tesseract (via
// gosseract/v2).
//
// OCR is an optional last step: the flattening pipeline never depends on
// it, and callers check Available before offering it.
//
// # Prerequisites
//
// Tesseract and the data for each language used must be installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Languages are Tesseract codes such as "eng", "deu" or "fra". The default
// is English.
//
// # Word Regions
//
// Results carry word-level bounding boxes in page coordinates. If the
// engine cannot report boxes, the text is still returned with an empty
// Regions slice.
package ocr
