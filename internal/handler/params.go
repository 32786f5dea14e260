package handler

import (
	"strconv"
	"strings"

	"cloudsync/internal/apperr"

	"github.com/gin-gonic/gin"
)

// PathID parses the int64 path parameter name.
func PathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// OptionalID parses an optional id taken from a query or form value. Empty, "null" and
// "root" mean no id.
func OptionalID(raw, name string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "null", "root":
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.Validation("invalid " + name)
	}
	return &id, nil
}

// NameParam reads a "name" value from the query string, falling back to a JSON body of
// the form {"name": "..."}.
func NameParam(c *gin.Context) string {
	if name, ok := c.GetQuery("name"); ok {
		return name
	}
	var body struct {
		Name string `json:"name"`
	}
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&body)
	}
	return body.Name
}
