package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func outputProperties(props map[string]interface{}) map[string]interface{} {
	props["output_path"] = map[string]interface{}{
		"type":        "string",
		"description": "Optional path to write the result to. The format follows the extension.",
	}
	props["format"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"png", "jpeg"},
		"description": "Encoding of the returned image. Default png",
	}
	props["quality"] = map[string]interface{}{
		"type":        "integer",
		"description": "JPEG quality 1-100. Default 95",
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and size. EXIF orientation is applied.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": pathProperty(),
			}, "path"),
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": pathProperty(),
			}, "path"),
		},
		{
			Name:        "image_edge_detect",
			Description: "Run the document edge detector (grayscale, Gaussian blur, Canny) and return the binary edge map as a PNG.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": pathProperty(),
				"kernel_size": map[string]interface{}{
					"type":        "integer",
					"description": "Odd Gaussian kernel size. Default 5",
				},
				"threshold_low": map[string]interface{}{
					"type":        "number",
					"description": "Canny lower hysteresis threshold (0-255 scale). Default 75",
				},
				"threshold_high": map[string]interface{}{
					"type":        "number",
					"description": "Canny upper hysteresis threshold (0-255 scale). Default 200",
				},
			}, "path"),
		},
		{
			Name:        "image_compare",
			Description: "Compare two same-sized images pixel by pixel and report mean and maximum difference.",
			InputSchema: objectSchema(map[string]interface{}{
				"path_a": pathProperty(),
				"path_b": pathProperty(),
			}, "path_a", "path_b"),
		},

		// Document Operations
		{
			Name:        "document_detect_boundary",
			Description: "Find the page outline in a photo and return its four corners (top-left, top-right, bottom-right, bottom-left) in pixel coordinates, plus the size the flattened page would have.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": pathProperty(),
				"include_overlay": map[string]interface{}{
					"type":        "boolean",
					"description": "Also return the photo with the detected outline drawn on it. Default false",
				},
			}, "path"),
		},
		{
			Name:        "document_flatten",
			Description: "Detect the page in a photo and warp it to a flat, top-down rectangle.",
			InputSchema: objectSchema(outputProperties(map[string]interface{}{
				"path": pathProperty(),
				"emit_debug": map[string]interface{}{
					"type":        "boolean",
					"description": "Write blurred, edge, contour and flattened images to the debug directory. Default false",
				},
				"return_image": map[string]interface{}{
					"type":        "boolean",
					"description": "Return the flattened page as base64. Default true when no output_path is given",
				},
			}), "path"),
		},
		{
			Name:        "document_crop_divider",
			Description: "Find a solid vertical divider line and crop the largest block of content to its right.",
			InputSchema: objectSchema(outputProperties(map[string]interface{}{
				"path": pathProperty(),
				"line_thickness": map[string]interface{}{
					"type":        "integer",
					"description": "Divider width in pixels. Default 5",
				},
				"color_tolerance": map[string]interface{}{
					"type":        "integer",
					"description": "Per-channel tolerance within the divider strip. Default 10",
				},
				"white_threshold": map[string]interface{}{
					"type":        "integer",
					"description": "Gray level at or above which a pixel is background. Default 220",
				},
			}), "path"),
		},
		{
			Name:        "document_ocr",
			Description: "Read the text of a document photo with Tesseract, flattening it first.",
			InputSchema: objectSchema(map[string]interface{}{
				"path": pathProperty(),
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Tesseract language code, e.g. eng, deu, eng+fra. Default eng",
				},
				"flatten": map[string]interface{}{
					"type":        "boolean",
					"description": "Flatten the page before OCR. Default true",
				},
				"min_confidence": map[string]interface{}{
					"type":        "number",
					"description": "Drop words below this confidence (0.0-1.0) from regions. Default 0",
				},
			}, "path"),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
