package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdfopt/analyzer"
	"pdfopt/batch"
	"pdfopt/ir/raw"
	"pdfopt/observability"
	"pdfopt/optimize"
	"pdfopt/parser"
	"pdfopt/recovery"
	"pdfopt/writer"
)

// HandleOptimize accepts a multipart PDF upload plus optional quality and
// preset form fields and responds with the optimized document bytes.
func HandleOptimize(c *gin.Context, config *Config) {
	data, ok := readUpload(c, config)
	if !ok {
		return
	}
	settings, ok := settingsFromForm(c)
	if !ok {
		return
	}

	doc, err := parseDocument(c, config, data)
	if err != nil {
		return
	}

	opt, err := optimize.New(settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stats, err := opt.Optimize(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "optimization failed"})
		return
	}

	out, err := writer.New().Bytes(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "serialization failed"})
		return
	}

	c.Header("X-Images-Optimized", strconv.Itoa(stats.ImagesOptimized))
	c.Header("X-Original-Size", strconv.Itoa(len(data)))
	c.Header("X-Compression-Ratio",
		fmt.Sprintf("%.1f", batch.CompressionRatio(int64(len(data)), int64(len(out)))))
	c.Data(http.StatusOK, "application/pdf", out)
}

// HandleAnalyze parses the uploaded document and responds with the
// read-only structural report.
func HandleAnalyze(c *gin.Context, config *Config) {
	data, ok := readUpload(c, config)
	if !ok {
		return
	}
	settings, ok := settingsFromForm(c)
	if !ok {
		return
	}

	doc, err := parseDocument(c, config, data)
	if err != nil {
		return
	}

	an, err := analyzer.New(settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := an.Analyze(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"objects":           report.ObjectCount,
		"images":            report.ImageCount,
		"fonts":             report.FontCount,
		"text_objects":      report.TextObjects,
		"images_size":       report.Breakdown.ImagesSize,
		"fonts_size":        report.Breakdown.FontsSize,
		"text_size":         report.Breakdown.TextSize,
		"other_size":        report.Breakdown.OtherSize,
		"estimated_savings": report.EstimatedSavings,
		"metadata": gin.H{
			"title":  doc.Metadata.Title,
			"author": doc.Metadata.Author,
		},
	})
}

func readUpload(c *gin.Context, config *Config) ([]byte, bool) {
	file, header, err := c.Request.FormFile("pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, false
	}
	defer file.Close()

	if err := validateUpload(header, config.MaxFileSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, config.MaxFileSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return nil, false
	}
	if int64(len(data)) > config.MaxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return nil, false
	}
	return data, true
}

func settingsFromForm(c *gin.Context) (optimize.Settings, bool) {
	quality := 80
	if q := c.PostForm("quality"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quality value"})
			return optimize.Settings{}, false
		}
		quality = v
	}
	preset := c.DefaultPostForm("preset", optimize.PresetWeb)
	settings, err := optimize.SettingsForPreset(preset, quality)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return optimize.Settings{}, false
	}
	return settings, true
}

func parseDocument(c *gin.Context, config *Config, data []byte) (*raw.Document, error) {
	p := parser.New(parser.Config{
		Recovery: recovery.NewLenientStrategy(),
		Logger:   observability.Default(config.Logger),
	})
	d, err := p.Parse(c.Request.Context(), bytes.NewReader(data))
	if err != nil {
		msg := "Malformed PDF"
		if errors.Is(err, parser.ErrEncryptedDocument) {
			msg = "Encrypted PDFs are not supported"
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msg})
		return nil, err
	}
	return d, nil
}

func validateUpload(header *multipart.FileHeader, maxSize int64) error {
	if header.Size > maxSize {
		return fmt.Errorf("file exceeds %d byte limit", maxSize)
	}
	return nil
}
