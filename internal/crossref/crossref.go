// Package crossref accumulates one DOI registration batch per run and
// serializes it as Crossref schema 4.4.1 XML.
package crossref

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/cu-library/etddepositor/internal/etd"
)

const (
	schemaVersion  = "4.4.1"
	schemaNS       = "http://www.crossref.org/schema/4.4.1"
	xsiNS          = "http://www.w3.org/2001/XMLSchema-instance"
	schemaLocation = "http://www.crossref.org/schema/4.4.1 http://www.crossref.org/schemas/crossref4.4.1.xsd"
)

// Depositor identifies the organization submitting the batch.
type Depositor struct {
	Name       string
	Email      string
	Registrant string
}

// Institution is the degree-granting institution block repeated in
// every dissertation record.
type Institution struct {
	Name  string
	Place string
}

type doiBatch struct {
	XMLName        xml.Name       `xml:"doi_batch"`
	Version        string         `xml:"version,attr"`
	Namespace      string         `xml:"xmlns,attr"`
	XSINamespace   string         `xml:"xmlns:xsi,attr"`
	SchemaLocation string         `xml:"xsi:schemaLocation,attr"`
	Head           head           `xml:"head"`
	Dissertations  []Dissertation `xml:"body>dissertation"`
}

type head struct {
	BatchID    int64         `xml:"doi_batch_id"`
	Timestamp  int64         `xml:"timestamp"`
	Depositor  depositorNode `xml:"depositor"`
	Registrant string        `xml:"registrant"`
}

type depositorNode struct {
	Name  string `xml:"depositor_name"`
	Email string `xml:"email_address"`
}

// Dissertation is one registration record in the batch body.
type Dissertation struct {
	Author       personName      `xml:"person_name"`
	Title        string          `xml:"titles>title"`
	ApprovalDate approvalDate    `xml:"approval_date"`
	Institution  institutionNode `xml:"institution"`
	Degree       string          `xml:"degree"`
	DOI          string          `xml:"doi_data>doi"`
	Resource     string          `xml:"doi_data>resource"`
}

type personName struct {
	Sequence  string `xml:"sequence,attr"`
	Role      string `xml:"contributor_role,attr"`
	GivenName string `xml:"given_name"`
	Surname   string `xml:"surname"`
}

type approvalDate struct {
	MediaType string `xml:"media_type,attr"`
	Year      string `xml:"year"`
}

type institutionNode struct {
	Name  string `xml:"institution_name"`
	Place string `xml:"institution_place"`
}

// Batch collects dissertation records as packages complete and is
// serialized once at the end of the run.
type Batch struct {
	document    doiBatch
	institution Institution
}

// NewBatch builds an empty batch with its header stamped from now.
func NewBatch(depositor Depositor, institution Institution, now time.Time) *Batch {
	return &Batch{
		document: doiBatch{
			Version:        schemaVersion,
			Namespace:      schemaNS,
			XSINamespace:   xsiNS,
			SchemaLocation: schemaLocation,
			Head: head{
				BatchID:   now.Unix(),
				Timestamp: now.Unix() * 1e7,
				Depositor: depositorNode{
					Name:  depositor.Name,
					Email: depositor.Email,
				},
				Registrant: depositor.Registrant,
			},
		},
		institution: institution,
	}
}

// Add appends the registration record for a completed package.
func (b *Batch) Add(data etd.PackageData) {
	surname, givenName := SplitCreator(data.Creator)
	b.document.Dissertations = append(b.document.Dissertations, Dissertation{
		Author: personName{
			Sequence:  "first",
			Role:      "author",
			GivenName: givenName,
			Surname:   surname,
		},
		Title: data.Title,
		ApprovalDate: approvalDate{
			MediaType: "online",
			Year:      data.Year,
		},
		Institution: institutionNode{
			Name:  b.institution.Name,
			Place: b.institution.Place,
		},
		Degree:   data.Degree.OrFlag(),
		DOI:      data.DOI,
		Resource: data.URL,
	})
}

// Size reports how many records the batch holds.
func (b *Batch) Size() int {
	return len(b.document.Dissertations)
}

// Bytes serializes the batch document with an XML declaration.
func (b *Batch) Bytes() ([]byte, error) {
	encoded, err := xml.MarshalIndent(&b.document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize crossref batch: %w", err)
	}
	return append([]byte(xml.Header), encoded...), nil
}

// SplitCreator divides a "Surname, Given" creator on the first comma.
// Mononymous creators have no given name.
func SplitCreator(creator string) (surname, givenName string) {
	surname, givenName, found := strings.Cut(creator, ",")
	if !found {
		return strings.TrimSpace(creator), ""
	}
	return strings.TrimSpace(surname), strings.TrimSpace(givenName)
}
