package helpers

import (
	"github.com/labstack/echo/v4"

	"github.com/avatarctic/order-quota/internal/core/domain/quota"
)

type ctxKey string

const (
	keyActor           ctxKey = "actor"
	keyCheckoutRequest ctxKey = "checkout_request"
)

func SetActor(c echo.Context, actor string) { c.Set(string(keyActor), actor) }
func GetActorRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyActor))
	s, ok := v.(string)
	return s, ok
}

func SetCheckoutRequest(c echo.Context, req *quota.CheckoutRequest) {
	c.Set(string(keyCheckoutRequest), req)
}
func GetCheckoutRequestRaw(c echo.Context) (*quota.CheckoutRequest, bool) {
	v := c.Get(string(keyCheckoutRequest))
	r, ok := v.(*quota.CheckoutRequest)
	return r, ok
}
