package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"axiapac.com/attendance/config"
	"axiapac.com/attendance/security"
)

// createtoken issues a device token for local testing, signed with ATTENDANCE_SIGNING_SECRET.
func main() {
	employeeID := flag.Int64("employee", 0, "employee id")
	companyID := flag.Int64("company", 0, "company id")
	device := flag.String("device", "local-device", "device id")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if len(cfg.SigningSecret) == 0 {
		log.Fatal("ATTENDANCE_SIGNING_SECRET is not set")
	}
	if *employeeID <= 0 || *companyID <= 0 {
		log.Fatal("-employee and -company are required")
	}

	token, err := security.CreateIdentityToken(security.Identity{
		EmployeeID: *employeeID,
		CompanyID:  *companyID,
		DeviceID:   *device,
	}, cfg.SigningSecret, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
