// Package detection locates a page boundary in a binary edge map.
//
// The pipeline has three replaceable steps:
//
//  1. FindContours traces every border of the edge map (outer borders and
//     hole borders alike) and compresses straight runs to their end points.
//  2. A QuadSelector simplifies the contours with ApproxPolyDP and picks the
//     page quadrilateral. LargestQuadSelector takes the largest contour that
//     simplifies to four vertices; RectangularitySelector prefers shapes
//     whose corners are closest to right angles.
//  3. A CornerOrderer labels the four vertices top-left, top-right,
//     bottom-right and bottom-left. SumDiffOrderer uses coordinate sums and
//     differences; CentroidAngleOrderer sorts by bearing from the centroid.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive top-left and exclusive bottom-right
//
// # Errors
//
// ErrNoDocumentBoundary is returned when no contour qualifies and
// ErrAmbiguousCornerOrdering when one point would fill two corner roles.
// Both are sentinels for errors.Is.
package detection
