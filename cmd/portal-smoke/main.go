package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"danaya.health/portal/internal/auth"
	"danaya.health/portal/internal/authn"
	"danaya.health/portal/internal/guard"
	"danaya.health/portal/internal/portal"
	"danaya.health/portal/internal/session"
	"danaya.health/portal/internal/store"
)

// Signs in against a live auth service with PORTAL_SMOKE_EMAIL/PASSWORD and checks
// that every view decision agrees with the role table.
func main() {
	authURL := os.Getenv("PORTAL_AUTH_URL")
	if authURL == "" {
		authURL = "http://localhost:8001"
	}
	registryURL := os.Getenv("PORTAL_REGISTRY_URL")
	if registryURL == "" {
		registryURL = "http://localhost:8003"
	}
	email := os.Getenv("PORTAL_SMOKE_EMAIL")
	password := os.Getenv("PORTAL_SMOKE_PASSWORD")

	client := authn.NewClient(authURL, registryURL)
	svc, err := portal.NewService(client, client, session.NewStore(store.NewMemory()))
	if err != nil {
		log.Fatalf("portal: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snap, err := svc.Login(ctx, email, password)
	if err != nil {
		log.Fatalf("login %s: %v", email, err)
	}
	svc.Wait()
	snap = svc.Snapshot(ctx)

	caps := auth.CapabilitiesFor(snap.Identity.Role)
	for _, view := range []guard.View{
		guard.ViewDashboard, guard.ViewPatients, guard.ViewAppointments, guard.ViewLabs,
		guard.ViewPrescriptions, guard.ViewTelemedicine, guard.ViewSettings,
	} {
		loc := svc.Navigate(ctx, view)
		want := guard.CanAccess(view, caps)
		if got := loc.Current == view; got != want {
			log.Fatalf("view %s: shown=%v, role %s expects %v", view, got, snap.Identity.Role, want)
		}
	}

	if err := svc.Logout(ctx); err != nil {
		log.Fatalf("logout: %v", err)
	}
	if svc.Snapshot(ctx).Authenticated() {
		log.Fatal("session still authenticated after logout")
	}

	org := "-"
	if snap.Organization != nil {
		org = snap.Organization.Name
	}
	fmt.Printf("✅ portal smoke test passed: role=%s state=%s organization=%s\n", snap.Identity.Role, snap.State, org)
}
