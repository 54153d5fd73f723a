// Package extraction turns a document file into ordered pages of raw text.
//
// Extractors are chosen by MIME type, then by file extension:
//
//   - PDF: poppler's pdftotext, one page per form feed, numbered from 1
//   - plain text, markdown, CSV and JSON: the whole file as page 1
//   - anything else: Apache Tika when extraction.tika_url is set
//
// A request with neither a MIME type nor an extension is treated as PDF.
package extraction
