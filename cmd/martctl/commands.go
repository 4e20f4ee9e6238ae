package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/internal/utils"
	"github.com/jatinkumar-gitdev/happily-mart/session"
	"github.com/jatinkumar-gitdev/happily-mart/tokencache"
	"github.com/jatinkumar-gitdev/happily-mart/users"
)

const (
	pathDeals   = "/deals"
	pathProfile = "/users/profile"
)

type deal struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("login needs <email> <password>")
	}
	user, err := a.session.Login(ctx, session.Credentials{
		Email:      args[0],
		Password:   args[1],
		RememberMe: a.opts.remember,
	})
	switch {
	case errors.Is(err, mterrors.ErrAccountDeactivated):
		return errors.New("your account has been deactivated, request reactivation")
	case errors.Is(err, mterrors.ErrInvalidCredentials):
		return errors.New("invalid email or password")
	case err != nil:
		return describe(err)
	}
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", user.Email, user.Role)
	return nil
}

func (a *app) me(ctx context.Context) error {
	if !a.session.InitializeAuth(ctx) {
		return errors.New("not signed in")
	}
	a.printProfile(utils.ValueOr(a.session.Snapshot().User, users.Profile{}))
	return nil
}

// status reports what the local state holds without touching the backend.
func (a *app) status() error {
	snap := a.session.Snapshot()
	fmt.Fprintf(a.out, "namespace:   %s\n", a.tokens.Namespace().Name)
	fmt.Fprintf(a.out, "state:       %s\n", snap.State)
	tok, ok := a.tokens.AccessToken()
	if !ok {
		fmt.Fprintln(a.out, "token:       none")
		return nil
	}
	fmt.Fprintf(a.out, "remember me: %t\n", a.tokens.RememberMe())
	fmt.Fprintf(a.out, "cookie:      expires %s\n", formatExpiry(tok.Expiry))
	if exp, ok := tokencache.PeekExpiry(tok.AccessToken); ok {
		fmt.Fprintf(a.out, "token:       expires %s\n", formatExpiry(exp))
	}
	return nil
}

func (a *app) refresh(ctx context.Context) error {
	token, err := a.api.Refresh(ctx)
	if err != nil {
		return describe(err)
	}
	a.session.SyncWithCookies()
	if exp, ok := tokencache.PeekExpiry(token); ok {
		fmt.Fprintf(a.out, "token refreshed, expires %s\n", formatExpiry(exp))
		return nil
	}
	fmt.Fprintln(a.out, "token refreshed")
	return nil
}

func (a *app) listDeals(ctx context.Context) error {
	var resp struct {
		Deals []deal `json:"deals"`
	}
	if err := a.api.Get(ctx, pathDeals, &resp); err != nil {
		return describe(err)
	}
	if len(resp.Deals) == 0 {
		fmt.Fprintln(a.out, "no deals")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE")
	for _, d := range resp.Deals {
		fmt.Fprintf(w, "%s\t%s\t%.2f\n", d.ID, d.Title, d.Price)
	}
	return w.Flush()
}

func (a *app) createDeal(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("deal needs <title> <price>")
	}
	price, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid price %q", args[1])
	}
	var resp struct {
		Deal deal `json:"deal"`
	}
	if err := a.api.Post(ctx, pathDeals, deal{Title: args[0], Price: price}, &resp); err != nil {
		return describe(err)
	}
	fmt.Fprintf(a.out, "created deal %s\n", resp.Deal.ID)
	return nil
}

func (a *app) updateProfile(ctx context.Context) error {
	patch := users.ProfilePatch{
		Name:    optional(a.opts.name),
		City:    optional(a.opts.city),
		Company: optional(a.opts.company),
	}
	if patch == (users.ProfilePatch{}) {
		return errors.New("profile needs at least one of -name, -city, -company")
	}
	if !a.session.InitializeAuth(ctx) {
		return errors.New("not signed in")
	}
	if err := a.api.Patch(ctx, pathProfile, patch, nil); err != nil {
		return describe(err)
	}
	a.session.UpdateUser(patch)
	a.printProfile(utils.ValueOr(a.session.Snapshot().User, users.Profile{}))
	return nil
}

func (a *app) printProfile(p users.Profile) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "name\t%s\n", p.Name)
	fmt.Fprintf(w, "email\t%s\n", p.Email)
	fmt.Fprintf(w, "role\t%s\n", p.Role)
	if p.Company != "" {
		fmt.Fprintf(w, "company\t%s\n", p.Company)
	}
	if p.City != "" {
		fmt.Fprintf(w, "city\t%s\n", p.City)
	}
	fmt.Fprintf(w, "active\t%t\n", p.IsActive)
	_ = w.Flush()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return utils.Ptr(s)
}

// describe turns backend errors into the message the server sent.
func describe(err error) error {
	if errors.Is(err, mterrors.ErrSessionExpired) {
		return errors.New("session expired, sign in again")
	}
	if apiErr, ok := mterrors.AsAPIError(err); ok && apiErr.Message != "" {
		return errors.New(apiErr.Message)
	}
	return err
}
