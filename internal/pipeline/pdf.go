package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	maxPDFTextBytes  = 100 * 1024
	defaultMaxTokens = 8192
	minMaxTokens     = 2048
	maxMaxTokens     = 32768
	scannedThreshold = 50 // extracted chars per page below which a PDF counts as scanned
)

var (
	pdfDatePattern   = regexp.MustCompile(`\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-]\d{2}[/\-]\d{2}|(?i:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2})`)
	pdfAmountPattern = regexp.MustCompile(`[$\-]?\d{1,3}(?:,\d{3})*\.\d{2}|\d+\.\d{2}`)
)

// PDFAnalysis describes a PDF statement before it is sent to the model.
type PDFAnalysis struct {
	PageCount        int
	IsScanned        bool
	EstimatedTxCount int
	MaxOutputTokens  int
	Err              error
}

// AnalyzePDF counts pages and transaction-like lines. It never panics; on
// failure it returns conservative defaults with Err set.
func AnalyzePDF(data []byte) (result *PDFAnalysis) {
	result = &PDFAnalysis{
		PageCount:       1,
		IsScanned:       true,
		MaxOutputTokens: defaultMaxTokens,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("AnalyzePDF: panic: %v", r)
			result.IsScanned = true
			result.MaxOutputTokens = defaultMaxTokens
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		result.Err = fmt.Errorf("AnalyzePDF: open reader: %w", err)
		return result
	}

	if n := reader.NumPage(); n > 0 {
		result.PageCount = n
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		result.Err = fmt.Errorf("AnalyzePDF: extract text: %w", err)
		return result
	}
	text, err := io.ReadAll(io.LimitReader(plain, maxPDFTextBytes))
	if err != nil {
		result.Err = fmt.Errorf("AnalyzePDF: read text: %w", err)
		return result
	}

	result.IsScanned = len(text)/result.PageCount < scannedThreshold
	for _, line := range strings.Split(string(text), "\n") {
		if pdfDatePattern.MatchString(line) && pdfAmountPattern.MatchString(line) {
			result.EstimatedTxCount++
		}
	}
	result.MaxOutputTokens = estimateOutputTokens(result.EstimatedTxCount)

	return result
}

// estimateOutputTokens sizes the model response: (150 + 100/tx) * 1.5,
// clamped and rounded up to a multiple of 1024.
func estimateOutputTokens(txCount int) int {
	if txCount <= 0 {
		return defaultMaxTokens
	}
	tokens := (150 + txCount*100) * 3 / 2
	if tokens < minMaxTokens {
		tokens = minMaxTokens
	}
	if tokens > maxMaxTokens {
		tokens = maxMaxTokens
	}
	if rem := tokens % 1024; rem != 0 {
		tokens += 1024 - rem
	}
	return tokens
}
