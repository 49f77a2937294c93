package common

import (
	"database/sql"
	"net"

	"axiapac.com/attendance/core"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Tenant resolves the schema of a request from its host name.
type Tenant struct {
	Dm *core.DatabaseManager
}

func GetHostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (t *Tenant) Name(c *gin.Context) string {
	return GetHostname(c.Request.Host)
}

func (t *Tenant) GetDB(c *gin.Context) (*gorm.DB, *sql.Conn, error) {
	return t.Dm.GetDB(c.Request.Context(), t.Name(c))
}
