package engine_test

import (
	"testing"

	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/engine/gateway"
)

func TestInitializeMilestones(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 10000)
	ms, err := env.Engine.InitializeMilestones(env.Ctx, employer, j.ID)
	if err != nil {
		t.Fatalf("init milestones: %v", err)
	}
	if len(ms) != len(domain.PayableLevels()) {
		t.Fatalf("expected %d milestones, got %d", len(domain.PayableLevels()), len(ms))
	}
	wantAmounts := map[int]int64{1: 2500, 2: 5000, 3: 7500, 4: 9000, 5: 10000}
	for _, m := range ms {
		if m.Amount != wantAmounts[m.Level] {
			t.Fatalf("level %d: expected amount %d, got %d", m.Level, wantAmounts[m.Level], m.Amount)
		}
		if m.PaymentStatus != domain.MilestonePending {
			t.Fatalf("expected PENDING milestone, got %s", m.PaymentStatus)
		}
	}
	if _, err := env.Engine.InitializeMilestones(env.Ctx, employer, j.ID); err == nil {
		t.Fatalf("expected conflict on second init")
	}
	if _, err := env.Engine.InitializeMilestones(env.Ctx, freelancer, j.ID); err == nil {
		t.Fatalf("expected forbidden for freelancer init")
	}
}

func TestAdminCanManageLedger(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 10000)
	if _, err := env.Engine.InitializeMilestones(env.Ctx, admin, j.ID); err != nil {
		t.Fatalf("admin init milestones: %v", err)
	}
	if _, err := env.Engine.UpdateProgress(env.Ctx, freelancer, j.ID, 1); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.CreatePaymentOrder(env.Ctx, admin, j.ID, 1)
	if err != nil {
		t.Fatalf("admin create payment order: %v", err)
	}
	confirmed, err := env.Engine.ConfirmPayment(env.Ctx, admin, j.ID, p.GatewayOrderID)
	if err != nil {
		t.Fatalf("admin confirm payment: %v", err)
	}
	if confirmed.Status != domain.PaymentSuccess {
		t.Fatalf("expected SUCCESS, got %s", confirmed.Status)
	}
}

func TestMilestoneAmountFromAcceptedBid(t *testing.T) {
	env := newTestEnv(t)
	// no budget: the accepted bid amount becomes the project total
	j, err := env.Engine.CreateJob(env.Ctx, employer, engine.JobCreateOptions{
		Title: "Logo", Company: "Acme", Location: "Remote", Description: "Design work",
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.Engine.PlaceBid(env.Ctx, freelancer, engine.BidOptions{JobID: j.ID, Amount: 4000})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.AcceptBid(env.Ctx, employer, b.ID); err != nil {
		t.Fatal(err)
	}
	ms, err := env.Engine.InitializeMilestones(env.Ctx, employer, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range ms {
		if m.Level == 1 && m.Amount != 1000 {
			t.Fatalf("expected 25%% of bid amount, got %d", m.Amount)
		}
	}
}

func TestPayableAmount(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 10000)
	if _, err := env.Engine.PayableAmount(env.Ctx, employer, j.ID); err == nil {
		t.Fatalf("expected conflict at level 0")
	}
	if _, err := env.Engine.UpdateProgress(env.Ctx, freelancer, j.ID, 2); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.PayableAmount(env.Ctx, employer, j.ID)
	if err != nil {
		t.Fatalf("payable: %v", err)
	}
	if p.Level != 2 || p.AmountDue != 5000 || p.PaymentExists {
		t.Fatalf("unexpected payable %+v", p)
	}
	if p.Currency == "" {
		t.Fatalf("expected currency from config")
	}
	if _, err := env.Engine.PayableAmount(env.Ctx, rival, j.ID); err == nil {
		t.Fatalf("expected forbidden for outsider")
	}
	// the allocated freelancer can read the ledger
	if _, err := env.Engine.PayableAmount(env.Ctx, freelancer, j.ID); err != nil {
		t.Fatalf("freelancer payable: %v", err)
	}
}

func TestCreatePaymentOrder(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 10000)
	if _, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 1); err == nil {
		t.Fatalf("expected conflict before reaching level 1")
	}
	if _, err := env.Engine.UpdateProgress(env.Ctx, freelancer, j.ID, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 0); err == nil {
		t.Fatalf("expected validation error for level 0")
	}
	if _, err := env.Engine.CreatePaymentOrder(env.Ctx, freelancer, j.ID, 1); err == nil {
		t.Fatalf("expected forbidden for freelancer")
	}
	p, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 1)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if p.Amount != 2500 || p.Status != domain.PaymentCreated {
		t.Fatalf("unexpected payment %+v", p)
	}
	if p.GatewayOrderID == "" {
		t.Fatalf("expected gateway order id")
	}
	if p.FreelancerID != freelancer.ID || p.RecruiterID != employer.ID {
		t.Fatalf("unexpected parties %+v", p)
	}
	if _, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 1); err == nil {
		t.Fatalf("expected conflict for duplicate payment")
	}
	// the payable view now reports the existing payment
	payable, err := env.Engine.PayableAmount(env.Ctx, employer, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !payable.PaymentExists {
		t.Fatalf("expected payment_exists after order creation")
	}
}

func TestCreatePaymentOrderRequiresAllocation(t *testing.T) {
	env := newTestEnv(t)
	j := budgetedJob(t, env, 10000)
	if _, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 1); err == nil {
		t.Fatalf("expected conflict for unallocated job")
	}
}

func TestConfirmPaymentSuccess(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 10000)
	if _, err := env.Engine.UpdateProgress(env.Ctx, freelancer, j.ID, 1); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	settled, err := env.Engine.ConfirmPayment(env.Ctx, employer, j.ID, p.GatewayOrderID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if settled.Status != domain.PaymentSuccess {
		t.Fatalf("expected SUCCESS, got %s", settled.Status)
	}
	ms, err := env.Engine.ListMilestones(env.Ctx, employer, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	var paid bool
	for _, m := range ms {
		if m.Level == 1 && m.PaymentStatus == domain.MilestonePaid {
			paid = true
		}
	}
	if !paid {
		t.Fatalf("expected milestone marked PAID")
	}
	if _, err := env.Engine.ConfirmPayment(env.Ctx, employer, j.ID, p.GatewayOrderID); err == nil {
		t.Fatalf("expected conflict confirming settled payment")
	}
}

func TestConfirmPaymentFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Gateway = gateway.Mock{Currency: "INR", FailOrders: true}
	j, _ := allocatedJob(t, env, 10000)
	if _, err := env.Engine.UpdateProgress(env.Ctx, freelancer, j.ID, 1); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	settled, err := env.Engine.ConfirmPayment(env.Ctx, employer, j.ID, p.GatewayOrderID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if settled.Status != domain.PaymentFailed {
		t.Fatalf("expected FAILED, got %s", settled.Status)
	}
	ms, err := env.Engine.ListMilestones(env.Ctx, employer, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range ms {
		if m.Level == 1 && m.PaymentStatus != domain.MilestonePending {
			t.Fatalf("milestone must stay PENDING on failure, got %s", m.PaymentStatus)
		}
	}
}

func TestListProjectPayments(t *testing.T) {
	env := newTestEnv(t)
	j, _ := allocatedJob(t, env, 10000)
	if _, err := env.Engine.UpdateProgress(env.Ctx, freelancer, j.ID, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreatePaymentOrder(env.Ctx, employer, j.ID, 2); err != nil {
		t.Fatal(err)
	}
	ps, err := env.Engine.ListProjectPayments(env.Ctx, freelancer, j.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(ps))
	}
	if _, err := env.Engine.ListProjectPayments(env.Ctx, rival, j.ID); err == nil {
		t.Fatalf("expected forbidden for outsider")
	}
}
