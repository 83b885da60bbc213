package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/", handleIndex(db))
	router.GET("/tickets", handleTicketList(db))
	router.GET("/tickets/:id", handleTicketDetail(db))
	router.GET("/api/health", handleHealth(db))
}

func handleIndex(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		queues, err := QueueSummary(db)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed")
			return
		}
		c.HTML(http.StatusOK, "index.html", gin.H{
			"Queues": queues,
		})
	}
}

func handleTicketList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tickets, err := TicketList(db)
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed")
			return
		}
		c.HTML(http.StatusOK, "tickets.html", gin.H{
			"Tickets": tickets,
		})
	}
}

func handleTicketDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := TicketByID(db, c.Param("id"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.String(http.StatusNotFound, "no such ticket")
			return
		}
		if err != nil {
			c.String(http.StatusInternalServerError, "query failed")
			return
		}
		c.HTML(http.StatusOK, "ticket.html", gin.H{
			"Detail": detail,
		})
	}
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
