// Package glicko2 implements the Glicko-2 rating system: a single pairwise
// update plus a batch update over a series of results accumulated across a
// rating period.
package glicko2

import "math"

const scaleFactor = 173.7178

// Rating is a (mu, phi, sigma) triple in Glicko-2's internal glicko scale.
type Rating struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// Default returns the system's default starting rating.
func Default(mu, phi, sigma float64) Rating {
	return Rating{Mu: mu, Phi: phi, Sigma: sigma}
}

func toGlicko2Scale(mu, phi float64) (float64, float64) {
	return (mu - 1500) / scaleFactor, phi / scaleFactor
}

func fromGlicko2Scale(mu, phi float64) (float64, float64) {
	return mu*scaleFactor + 1500, phi * scaleFactor
}

func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func e(mu, muJ, phiJ float64) float64 {
	return 1 / (1 + math.Exp(-g(phiJ)*(mu-muJ)))
}

// Result is one opponent's pre-update rating plus the score against them
// (1.0 win, 0.5 draw, 0.0 loss), from the subject's perspective.
type Result struct {
	Opponent Rating
	Score    float64
}

// Update applies the Glicko-2 algorithm to subject given the series of
// results accumulated over one rating period, returning the new rating.
// An empty series only inflates phi (rating deviation grows with inactivity).
func Update(tau float64, subject Rating, results []Result) Rating {
	mu, phi := toGlicko2Scale(subject.Mu, subject.Phi)
	sigma := subject.Sigma

	if len(results) == 0 {
		phiStar := math.Sqrt(phi*phi + sigma*sigma)
		newMu, newPhi := fromGlicko2Scale(mu, phiStar)
		return Rating{Mu: newMu, Phi: newPhi, Sigma: sigma}
	}

	var vInv float64
	var deltaSum float64
	for _, r := range results {
		oppMu, oppPhi := toGlicko2Scale(r.Opponent.Mu, r.Opponent.Phi)
		gPhiJ := g(oppPhi)
		eVal := e(mu, oppMu, oppPhi)
		vInv += gPhiJ * gPhiJ * eVal * (1 - eVal)
		deltaSum += gPhiJ * (r.Score - eVal)
	}
	v := 1 / vInv
	delta := v * deltaSum

	sigmaPrime := newSigma(tau, phi, sigma, delta, v)

	phiStar := math.Sqrt(phi*phi + sigmaPrime*sigmaPrime)
	phiPrime := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muPrime := mu + phiPrime*phiPrime*deltaSum

	newMu, newPhi := fromGlicko2Scale(muPrime, phiPrime)
	return Rating{Mu: newMu, Phi: newPhi, Sigma: sigmaPrime}
}

// newSigma solves for the new volatility via the Illinois variant of
// regula falsi, as specified by Glickman's Glicko-2 paper.
func newSigma(tau, phi, sigma, delta, v float64) float64 {
	a := math.Log(sigma * sigma)
	fn := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2 * math.Pow(phi*phi+v+ex, 2)
		return num/den - (x-a)/(tau*tau)
	}

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for fn(a-k*tau) < 0 {
			k++
		}
		B = a - k*tau
	}

	fA := fn(A)
	fB := fn(B)

	const epsilon = 1e-6
	for math.Abs(B-A) > epsilon {
		C := A + (A-B)*fA/(fB-fA)
		fC := fn(C)
		if fC*fB < 0 {
			A = B
			fA = fB
		} else {
			fA /= 2
		}
		B = C
		fB = fC
	}

	return math.Exp(A / 2)
}

// ExpectedScore returns the probability that subject beats opponent, used
// only for diagnostics/tests, not by the update path.
func ExpectedScore(subject, opponent Rating) float64 {
	mu, _ := toGlicko2Scale(subject.Mu, subject.Phi)
	oppMu, oppPhi := toGlicko2Scale(opponent.Mu, opponent.Phi)
	return e(mu, oppMu, oppPhi)
}
