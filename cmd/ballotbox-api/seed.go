package main

import (
	"context"
	"fmt"
	"time"

	"github.com/campuslabs/ballotbox/backend/internal/catalog"
	"github.com/campuslabs/ballotbox/backend/internal/voters"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Demo fixture: a small student-council election that is open for the next
// two days, with approved candidates and eligible voters. Intended for local
// development and demos, not production.
func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load a demo election with positions, candidates and voters",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildEngine()
			if err != nil {
				return err
			}
			defer app.Close()
			return seedDemoElection(cmd.Context(), app)
		},
	}
}

func seedDemoElection(ctx context.Context, app *engine) error {
	now := time.Now().UTC()

	election, err := app.catalog.CreateElection(ctx, catalog.Election{
		Name:      fmt.Sprintf("%d General Student Council Election", now.Year()),
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(48 * time.Hour),
		IsActive:  true,
	})
	if err != nil {
		return err
	}

	positions := []catalog.Position{
		{Name: "President", BallotOrder: 1, Winners: 1},
		{Name: "Vice President", BallotOrder: 2, Winners: 1},
		{Name: "Senator", BallotOrder: 3, Winners: 6},
	}
	created := make([]catalog.Position, 0, len(positions))
	for _, position := range positions {
		position.IsActive = true
		stored, err := app.catalog.CreatePosition(ctx, position)
		if err != nil {
			return err
		}
		created = append(created, stored)
	}

	unityParty, err := app.catalog.CreateParty(ctx, catalog.Party{
		Name: "Student Unity Alliance", ShortCode: "SUA", IsActive: true,
	})
	if err != nil {
		return err
	}
	reformParty, err := app.catalog.CreateParty(ctx, catalog.Party{
		Name: "Campus Reform Movement", ShortCode: "CRM", IsActive: true,
	})
	if err != nil {
		return err
	}
	parties := []catalog.Party{unityParty, reformParty}

	voterNames := []string{
		"Maria Santos", "Jose Ramirez", "Ana dela Cruz", "Paolo Reyes",
		"Liza Bautista", "Marco Villanueva", "Carmen Flores", "Rafael Aquino",
		"Isabel Navarro", "Daniel Mercado", "Sofia Castillo", "Miguel Torres",
		"Bianca Domingo", "Gabriel Ocampo", "Teresa Salazar", "Andres Lim",
	}
	profiles := make([]voters.Profile, 0, len(voterNames))
	for index, name := range voterNames {
		profile, err := app.voters.Register(ctx, voters.Profile{
			StudentNumber:  fmt.Sprintf("%d-%05d", now.Year(), index+1),
			FullName:       name,
			Course:         "BSCS",
			YearLevel:      index%4 + 1,
			EligibleToVote: true,
		})
		if err != nil {
			return err
		}
		profiles = append(profiles, profile)
	}

	// First two profiles per single-winner position, next eight for senator.
	candidateIndex := 0
	for _, position := range created {
		perPosition := 2
		if position.Winners > 1 {
			perPosition = 8
		}
		for slot := 0; slot < perPosition && candidateIndex < len(profiles); slot++ {
			profile := profiles[candidateIndex]
			party := parties[candidateIndex%len(parties)]
			candidate, err := app.catalog.CreateCandidate(ctx, catalog.Candidate{
				ProfileID:  profile.ID,
				PositionID: position.ID,
				ElectionID: election.ID,
				PartyID:    &party.ID,
				FullName:   profile.FullName,
			})
			if err != nil {
				return err
			}
			if err := app.catalog.ApproveCandidate(ctx, candidate.ID); err != nil {
				return err
			}
			candidateIndex++
		}
	}

	app.logger.Info("demo election seeded",
		zap.Uint("election_id", election.ID),
		zap.Int("positions", len(created)),
		zap.Int("voters", len(profiles)))
	return nil
}
