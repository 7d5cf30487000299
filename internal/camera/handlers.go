package camera

import (
	"bufio"
	"context"

	"github.com/gofiber/fiber/v2"
)

const streamContentType = "multipart/x-mixed-replace; boundary=frame"

// RegisterRoutes mounts the MJPEG stream and its stats. With fiber's
// default non-strict routing "/video_feed/" is served by the same route.
func RegisterRoutes(r fiber.Router, pump *Pump) {
	r.Get("/video_feed/stats", func(c *fiber.Ctx) error {
		return c.JSON(pump.Stats())
	})

	r.Get("/video_feed", func(c *fiber.Ctx) error {
		index := c.QueryInt("cam", pump.DefaultIndex())
		if index < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "cam inválido")
		}
		fps := c.QueryFloat("fps", 0)

		c.Set(fiber.HeaderContentType, streamContentType)
		c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
		c.Set("X-Accel-Buffering", "no")

		// The stream outlives the handler. It ends when a flush fails because
		// the client went away, or when the pump closes.
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			for chunk := range pump.Frames(context.Background(), index, fps) {
				if _, err := w.Write(chunk); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	})
}
