// Package imaging provides the raster operations behind document flattening.
//
// It decodes and caches images, builds binary edge maps, draws boundary
// overlays, encodes results, and crops content beside a divider line. All
// operations work with standard Go image.Image types and use a coordinate
// system where (0,0) is the top-left pixel, X increases rightward and Y
// increases downward.
//
// # Coordinate System
//
// Pixel coordinates are 0-based. Rectangles follow image.Rectangle: Min is
// inclusive, Max exclusive. Results produced here always start at (0,0),
// even when the input is a sub-image.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Every other function is stateless
// and never modifies its input, so it can be called concurrently.
//
// # Libraries
//
// Decoding, orientation, resizing, cropping and encoding use
// github.com/disintegration/imaging. Grayscale conversion and Gaussian
// convolution use github.com/anthonynsimon/bild. Overlays are rasterised
// with golang.org/x/image/vector and labelled with basicfont.
package imaging
