package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
	"github.com/dvloznov/statement-ingest/internal/session"
	"github.com/dvloznov/statement-ingest/internal/summary"
)

var (
	errc    = color.New(color.BgRed, color.FgWhite).PrintfFunc()
	okc     = color.New(color.BgGreen, color.FgBlack).PrintfFunc()
	warnc   = color.New(color.BgYellow, color.FgBlack).PrintfFunc()
	infoc   = color.New(color.BgBlue, color.FgWhite).PrintfFunc()
	headerc = color.New(color.Bold, color.Underline).PrintlnFunc()
)

const descLength = 40

func printStatus(status string) {
	switch status {
	case session.UploadStatusUploaded:
		okc(" %-9s ", "UPLOADED")
	case session.UploadStatusDuplicate:
		warnc(" %-9s ", "DUPLICATE")
	case session.UploadStatusCancelled:
		warnc(" %-9s ", "CANCELLED")
	case session.UploadStatusFailed:
		errc(" %-9s ", "FAILED")
	default:
		infoc(" %-9s ", strings.ToUpper(status))
	}
}

// printResult prints one file's outcome. status may be empty for parse-only runs.
func printResult(res *pipeline.Result, status string, verbose bool) {
	if status == "" {
		infoc(" %-9s ", "PARSED")
	} else {
		printStatus(status)
	}
	fmt.Printf(" %s  %d transactions", res.Filename, len(res.Transactions))
	if res.Summary.DateRange.Display != "" {
		fmt.Printf("  (%s)", res.Summary.DateRange.Display)
	}
	fmt.Println()

	for _, msg := range []string{res.Message, res.ReadErr, res.ParseErr, res.PersistErr} {
		if msg != "" {
			fmt.Printf("            %s\n", msg)
		}
	}
	if res.ArchiveURI != "" {
		fmt.Printf("            archived to %s\n", res.ArchiveURI)
	}
	if res.Cached {
		fmt.Println("            kept in the local cache; run 'cli flush' later")
	}

	if verbose {
		for _, tx := range res.Transactions {
			printTransaction(tx)
		}
	}
}

func printTransaction(tx domain.Transaction) {
	desc := tx.Description
	if len(desc) > descLength {
		desc = desc[:descLength]
	}
	fmt.Printf("            %s  %-*s ", tx.Date, descLength, desc)
	if tx.IsIncome() {
		okc(" %10.2f ", tx.Amount)
	} else {
		errc(" %10.2f ", tx.Amount)
	}
	fmt.Printf(" %s\n", tx.Category)
}

func printSummary(title string, s summary.Summary) {
	fmt.Println()
	headerc(title)
	fmt.Printf("Transactions:   %d\n", s.TransactionCount)
	if s.DateRange.Display != "" {
		fmt.Printf("Period:         %s\n", s.DateRange.Display)
	}
	fmt.Printf("Total income:   %.2f\n", s.TotalIncome)
	fmt.Printf("Total expenses: %.2f\n", s.TotalExpenses)
	fmt.Printf("Net cash flow:  %.2f\n", s.NetCashFlow)
	fmt.Printf("Savings rate:   %.1f%%\n", s.SavingsRate)

	if len(s.TopCategories) > 0 {
		fmt.Println("\nTop categories:")
		for _, c := range s.TopCategories {
			fmt.Printf("  %-20s %10.2f  %5.1f%%  (%d)\n", c.Category, c.Amount, c.Percentage, c.Count)
		}
	}
	fmt.Println()
}
