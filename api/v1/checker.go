package v1

import (
	"encoding/hex"

	"github.com/database64128/domaincheck-go"
	"github.com/database64128/domaincheck-go/checker"
	"github.com/gofiber/fiber/v2"
)

// Source is the stats source name of API queries.
const Source = "api"

// maxBatchSize is the maximum number of domains in one batch check request.
const maxBatchSize = 4096

// ServerInfo contains information about the API server.
type ServerInfo struct {
	Name       string `json:"server"`
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}

var serverInfo = ServerInfo{
	Name:       "domaincheck-go",
	Version:    domaincheck.Version,
	APIVersion: "v1",
}

// GetServerInfo returns information about the API server.
func GetServerInfo(c *fiber.Ctx) error {
	return c.JSON(&serverInfo)
}

// CheckerHandler handles checker API requests.
type CheckerHandler struct {
	ck        *checker.Checker
	indexInfo IndexInfo
}

// NewCheckerHandler returns a new checker handler.
func NewCheckerHandler(ck *checker.Checker) *CheckerHandler {
	x := ck.Index()
	fingerprint := x.Fingerprint()
	return &CheckerHandler{
		ck: ck,
		indexInfo: IndexInfo{
			Domains:     x.Len(),
			Fingerprint: hex.EncodeToString(fingerprint[:]),
		},
	}
}

// Routes sets up routes for the checker endpoints.
func (ch *CheckerHandler) Routes(v1 fiber.Router) {
	v1.Get("", GetServerInfo)
	v1.Get("/check", ch.Check)
	v1.Post("/check", ch.CheckBatch)
	v1.Get("/index", ch.GetIndexInfo)
	v1.Get("/stats", ch.GetStats)
}

// Check checks the domain in the query string.
// An empty domain is the root domain.
func (ch *CheckerHandler) Check(c *fiber.Ctx) error {
	if !c.Context().QueryArgs().Has("domain") {
		return c.Status(fiber.StatusBadRequest).JSON(&StandardError{Message: "missing domain"})
	}
	r := ch.ck.Check(Source, c.Query("domain"))
	return c.JSON(&r)
}

// BatchCheckRequest is the request body of a batch check.
type BatchCheckRequest struct {
	Domains []string `json:"domains"`
}

// BatchCheckResponse is the response body of a batch check.
// Results are in request order.
type BatchCheckResponse struct {
	Results []checker.Result `json:"results"`
}

// CheckBatch checks the domains in the request body.
func (ch *CheckerHandler) CheckBatch(c *fiber.Ctx) error {
	var req BatchCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(&StandardError{Message: err.Error()})
	}
	if len(req.Domains) > maxBatchSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(&StandardError{Message: "too many domains"})
	}

	resp := BatchCheckResponse{
		Results: make([]checker.Result, len(req.Domains)),
	}
	for i, domain := range req.Domains {
		resp.Results[i] = ch.ck.Check(Source, domain)
	}
	return c.JSON(&resp)
}

// IndexInfo contains information about the forbidden domain index.
type IndexInfo struct {
	Domains     int    `json:"domains"`
	Fingerprint string `json:"fingerprint"`
}

// GetIndexInfo returns information about the forbidden domain index.
func (ch *CheckerHandler) GetIndexInfo(c *fiber.Ctx) error {
	return c.JSON(&ch.indexInfo)
}

// GetStats returns verdict statistics.
func (ch *CheckerHandler) GetStats(c *fiber.Ctx) error {
	sc := ch.ck.Stats()
	if c.QueryBool("clear", false) {
		return c.JSON(sc.SnapshotAndReset())
	}
	return c.JSON(sc.Snapshot())
}
