// cmd/test-convert is a standalone CLI for trying classification and
// conversion on local files without running the server.
//
// Usage:
//
//	./test-convert -input photo.heic -probe             # classify only
//	./test-convert -input photo.heic -format webp       # convert, keep width
//	./test-convert -input logo.svg -format png -width 512 -output logo.png
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-media/internal/classify"
	"github.com/tendant/simple-media/internal/convert"
	"github.com/tendant/simple-media/internal/converters"
	"github.com/tendant/simple-media/internal/format"
	"github.com/tendant/simple-media/internal/img"
	"github.com/tendant/simple-media/internal/logging"
)

func main() {
	input := flag.String("input", "", "Input file path (required)")
	output := flag.String("output", "", "Output path (default: input name with the target extension)")
	target := flag.String("format", "webp", "Target format: webp, png, jpeg, gif or jxl")
	width := flag.Int("width", 0, "Target width in pixels (0 keeps the source width)")
	probe := flag.Bool("probe", false, "Classify the file only (don't convert)")
	timeout := flag.Int("timeout", 30, "Timeout in seconds")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("❌ Failed to read input: %v", err)
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	ff := converters.NewFFmpeg("", "")
	codec := img.NewCodec(img.DefaultOptions())
	classifier := classify.New(codec, ff, classify.WithLogger(logger))

	res, err := classifier.Classify(ctx, data)
	if err != nil {
		log.Fatalf("❌ Classification failed: %v", err)
	}

	fmt.Println("\n📊 Classification:")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Format: %s\n", res.Format)
	fmt.Printf("Dimensions: %dx%d pixels\n", res.Width, res.Height)
	fmt.Printf("File Size: %s\n", formatBytes(int64(len(data))))
	if *probe {
		return
	}

	to := format.Parse(*target)
	if !format.Deliverable(to) {
		log.Fatalf("❌ Unsupported target format %q", *target)
	}
	if *output == "" {
		ext := format.Extension(to)
		base := strings.TrimSuffix(*input, filepath.Ext(*input))
		*output = base + "_converted" + ext
	}

	fmt.Printf("\n🎨 Converting to %s...\n", to)
	start := time.Now()

	engine := convert.New(codec, ff, logger)
	out, err := engine.Convert(ctx, convert.Request{
		Data:         data,
		Source:       res.Format,
		Target:       to,
		SourceWidth:  res.Width,
		SourceHeight: res.Height,
		Width:        *width,
	})
	if err != nil {
		log.Fatalf("❌ Conversion failed: %v", err)
	}
	duration := time.Since(start)

	if err := os.WriteFile(*output, out, 0o644); err != nil {
		log.Fatalf("❌ Failed to write output: %v", err)
	}

	fmt.Printf("\n✅ Conversion successful!\n")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("📁 Output: %s\n", *output)
	fmt.Printf("📏 Size: %s\n", formatBytes(int64(len(out))))
	fmt.Printf("⏱️  Time: %v\n", duration.Round(time.Millisecond))
	if *verbose && len(data) > 0 {
		fmt.Printf("📊 Compression: %.1f%%\n", float64(len(out))/float64(len(data))*100)
	}
	fmt.Println()
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
