package state

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"carbonledger/internal/registry/models"
	id "carbonledger/pkg/domain"
	dErrors "carbonledger/pkg/domain-errors"
)

const (
	admin    = id.Identity("admin")
	ownerA   = id.Identity("owner-a")
	ownerB   = id.Identity("owner-b")
	oracleO  = id.Identity("oracle-o")
	stranger = id.Identity("stranger")
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
	hashSeq  uint64
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = New(admin)
	s.hashSeq = 0
}

// evidence returns a fresh 32-byte digest, unique within a test.
func (s *RegistrySuite) evidence() []byte {
	s.hashSeq++
	hash := make([]byte, models.EvidenceHashSize)
	binary.BigEndian.PutUint64(hash, s.hashSeq)
	return hash
}

func (s *RegistrySuite) registerFacility(owner id.Identity) id.FacilityID {
	facilityID, err := s.registry.RegisterFacility(owner, "DAC Plant", "Reykjavik", "direct air capture", 100)
	s.Require().NoError(err)
	return facilityID
}

func (s *RegistrySuite) registerCapture(caller id.Identity, facilityID id.FacilityID, amount uint64) id.EventID {
	eventID, err := s.registry.RegisterCapture(caller, facilityID, s.evidence(), amount, 1700000000, "sensor batch")
	s.Require().NoError(err)
	return eventID
}

// -----------------------------------------------------------------------------
// Identity & access
// -----------------------------------------------------------------------------

func (s *RegistrySuite) TestAdminOperations() {
	s.Run("only admin can grant oracles", func() {
		err := s.registry.GrantOracle(stranger, oracleO)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.False(s.registry.IsOracleAuthorized(oracleO), "oracle set must be unchanged")
	})

	s.Run("admin grants and revokes oracles", func() {
		s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
		s.True(s.registry.IsOracleAuthorized(oracleO))

		s.Require().NoError(s.registry.RevokeOracle(admin, oracleO))
		s.False(s.registry.IsOracleAuthorized(oracleO))
	})

	s.Run("admin transfer is effective immediately", func() {
		newAdmin := id.Identity("admin-2")
		s.Require().NoError(s.registry.TransferAdmin(admin, newAdmin))
		s.Equal(newAdmin, s.registry.Admin())

		err := s.registry.Pause(admin)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "old admin loses authority")

		s.Require().NoError(s.registry.Pause(newAdmin))
		s.True(s.registry.IsPaused())

		// Hand it back for the remaining subtests.
		s.Require().NoError(s.registry.TransferAdmin(newAdmin, admin))
		s.Require().NoError(s.registry.Unpause(admin))
	})

	s.Run("pausing twice overwrites and succeeds", func() {
		s.Require().NoError(s.registry.Pause(admin))
		s.Require().NoError(s.registry.Pause(admin))
		s.True(s.registry.IsPaused())
		s.Require().NoError(s.registry.Unpause(admin))
	})
}

func (s *RegistrySuite) TestPauseBlocksAllMutations() {
	s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
	facilityID := s.registerFacility(ownerA)
	eventID := s.registerCapture(ownerA, facilityID, 500)

	s.Require().NoError(s.registry.Pause(admin))

	_, err := s.registry.RegisterFacility(ownerA, "n", "l", "d", 1)
	s.True(dErrors.HasCode(err, dErrors.CodePaused))

	err = s.registry.UpdateFacilityStatus(ownerA, facilityID, false)
	s.True(dErrors.HasCode(err, dErrors.CodePaused))

	_, err = s.registry.RegisterCapture(ownerA, facilityID, s.evidence(), 1, 1, "")
	s.True(dErrors.HasCode(err, dErrors.CodePaused))

	err = s.registry.VerifyCapture(oracleO, eventID)
	s.True(dErrors.HasCode(err, dErrors.CodePaused))

	err = s.registry.UpdateEventMetadata(ownerA, eventID, "new")
	s.True(dErrors.HasCode(err, dErrors.CodePaused))

	s.Run("reads remain available while paused", func() {
		s.True(s.registry.IsPaused())
		s.Equal(admin, s.registry.Admin())
		_, ok := s.registry.Facility(facilityID)
		s.True(ok)
		_, ok = s.registry.CaptureEvent(eventID)
		s.True(ok)
		s.Equal(uint64(0), s.registry.GlobalTotal())
		s.Len(s.registry.FacilityEventIndex(facilityID), 1)
	})
}

// -----------------------------------------------------------------------------
// Facility directory
// -----------------------------------------------------------------------------

func (s *RegistrySuite) TestFacilityIDsAreSequentialFromOne() {
	first := s.registerFacility(ownerA)
	second := s.registerFacility(ownerB)
	third := s.registerFacility(ownerA)

	s.Equal(id.FacilityID(1), first)
	s.Equal(id.FacilityID(2), second)
	s.Equal(id.FacilityID(3), third)
}

func (s *RegistrySuite) TestRegisterFacility() {
	s.Run("stores owner, height, and active flag", func() {
		facilityID, err := s.registry.RegisterFacility(ownerA, "Basalt Injection Site", "Hellisheidi", "mineralization", 4242)
		s.Require().NoError(err)

		facility, ok := s.registry.Facility(facilityID)
		s.Require().True(ok)
		s.Equal(ownerA, facility.Owner)
		s.Equal("Basalt Injection Site", facility.Name)
		s.Equal(id.BlockHeight(4242), facility.RegisteredAt)
		s.True(facility.Active)
		s.Empty(s.registry.FacilityEventIndex(facilityID))
	})

	s.Run("description limit counts code points, not bytes", func() {
		within := make([]rune, models.MaxDescriptionCodePoints)
		for i := range within {
			within[i] = '界' // 3 bytes each
		}
		_, err := s.registry.RegisterFacility(ownerA, "n", "l", string(within), 1)
		s.Require().NoError(err)

		over := string(within) + "界"
		_, err = s.registry.RegisterFacility(ownerA, "n", "l", over, 1)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDescriptionTooLong))
	})

	s.Run("duplicate names are allowed, only IDs are unique", func() {
		first, err := s.registry.RegisterFacility(ownerA, "Twin", "Same Place", "", 1)
		s.Require().NoError(err)
		second, err := s.registry.RegisterFacility(ownerB, "Twin", "Same Place", "", 1)
		s.Require().NoError(err)
		s.NotEqual(first, second)
	})
}

func (s *RegistrySuite) TestUpdateFacilityStatus() {
	facilityID := s.registerFacility(ownerA)

	s.Run("unknown facility", func() {
		err := s.registry.UpdateFacilityStatus(ownerA, 999, false)
		s.True(dErrors.HasCode(err, dErrors.CodeFacilityNotFound))
	})

	s.Run("only the owner may toggle", func() {
		err := s.registry.UpdateFacilityStatus(ownerB, facilityID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		facility, _ := s.registry.Facility(facilityID)
		s.True(facility.Active, "status must be unchanged")
	})

	s.Run("deactivation blocks future captures only", func() {
		eventID := s.registerCapture(ownerA, facilityID, 100)

		s.Require().NoError(s.registry.UpdateFacilityStatus(ownerA, facilityID, false))

		_, err := s.registry.RegisterCapture(ownerA, facilityID, s.evidence(), 1, 1, "")
		s.True(dErrors.HasCode(err, dErrors.CodeFacilityNotFound))

		// The existing event survives and can still be verified.
		s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
		s.Require().NoError(s.registry.VerifyCapture(oracleO, eventID))
		s.Equal(uint64(100), s.registry.FacilityTotal(facilityID))
	})
}

// -----------------------------------------------------------------------------
// Capture ledger
// -----------------------------------------------------------------------------

func (s *RegistrySuite) TestRegisterCaptureValidation() {
	s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
	facilityID := s.registerFacility(ownerA)

	assertUnchanged := func() {
		s.T().Helper()
		s.Equal(uint64(0), s.registry.EventCount())
		s.Empty(s.registry.FacilityEventIndex(facilityID))
	}

	s.Run("nonexistent facility fails regardless of caller role", func() {
		for _, caller := range []id.Identity{ownerA, oracleO, admin} {
			_, err := s.registry.RegisterCapture(caller, 42, s.evidence(), 1, 1, "")
			s.True(dErrors.HasCode(err, dErrors.CodeFacilityNotFound))
		}
		assertUnchanged()
	})

	s.Run("caller must be owner or oracle", func() {
		_, err := s.registry.RegisterCapture(stranger, facilityID, s.evidence(), 1, 1, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assertUnchanged()
	})

	s.Run("31-byte hash is rejected", func() {
		_, err := s.registry.RegisterCapture(ownerA, facilityID, make([]byte, 31), 1, 1, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidHash))
		assertUnchanged()
	})

	s.Run("zero amount is rejected", func() {
		_, err := s.registry.RegisterCapture(ownerA, facilityID, s.evidence(), 0, 1, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAmount))
		assertUnchanged()
	})

	s.Run("zero timestamp is rejected", func() {
		_, err := s.registry.RegisterCapture(ownerA, facilityID, s.evidence(), 1, 0, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTimestamp))
		assertUnchanged()
	})

	s.Run("metadata over 1000 code points is rejected", func() {
		over := make([]rune, models.MaxMetadataCodePoints+1)
		for i := range over {
			over[i] = 'µ'
		}
		_, err := s.registry.RegisterCapture(ownerA, facilityID, s.evidence(), 1, 1, string(over))
		s.True(dErrors.HasCode(err, dErrors.CodeMetadataTooLong))
		assertUnchanged()
	})

	s.Run("duplicate evidence hash is rejected", func() {
		hash := s.evidence()
		first, err := s.registry.RegisterCapture(ownerA, facilityID, hash, 10, 1, "")
		s.Require().NoError(err)

		_, err = s.registry.RegisterCapture(ownerA, facilityID, hash, 20, 2, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateEvidence))

		// Only the first registration exists.
		s.Equal(uint64(1), s.registry.EventCount())
		s.Equal([]id.EventID{first}, s.registry.FacilityEventIndex(facilityID))
	})

	s.Run("oracles may register captures for facilities they do not own", func() {
		eventID, err := s.registry.RegisterCapture(oracleO, facilityID, s.evidence(), 5, 1, "")
		s.Require().NoError(err)
		event, ok := s.registry.CaptureEvent(eventID)
		s.Require().True(ok)
		s.False(event.Verified)
	})
}

func (s *RegistrySuite) TestEventIDsNeverReusedAcrossFailedAttempts() {
	s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
	facilityID := s.registerFacility(ownerA)

	first := s.registerCapture(ownerA, facilityID, 10)
	s.Equal(id.EventID(1), first)

	// A burst of failing registrations must not consume IDs.
	_, err := s.registry.RegisterCapture(ownerA, facilityID, make([]byte, 16), 1, 1, "")
	s.Require().Error(err)
	_, err = s.registry.RegisterCapture(ownerA, facilityID, s.evidence(), 0, 1, "")
	s.Require().Error(err)
	_, err = s.registry.RegisterCapture(stranger, facilityID, s.evidence(), 1, 1, "")
	s.Require().Error(err)

	second := s.registerCapture(ownerA, facilityID, 20)
	s.Equal(id.EventID(2), second)
}

func (s *RegistrySuite) TestVerifyCapture() {
	s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
	facilityID := s.registerFacility(ownerA)
	eventID := s.registerCapture(ownerA, facilityID, 1000)

	s.Run("unknown event", func() {
		err := s.registry.VerifyCapture(oracleO, 999)
		s.True(dErrors.HasCode(err, dErrors.CodeEventNotFound))
	})

	s.Run("non-oracle cannot verify", func() {
		for _, caller := range []id.Identity{ownerA, admin, stranger} {
			err := s.registry.VerifyCapture(caller, eventID)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		}
		s.Equal(uint64(0), s.registry.GlobalTotal())
	})

	s.Run("oracle verifies exactly once", func() {
		s.Require().NoError(s.registry.VerifyCapture(oracleO, eventID))

		event, ok := s.registry.CaptureEvent(eventID)
		s.Require().True(ok)
		s.True(event.Verified)
		s.Require().NotNil(event.Verifier)
		s.Equal(oracleO, *event.Verifier)
		s.Equal(uint64(1000), s.registry.GlobalTotal())
	})

	s.Run("second verification reports already verified, state untouched", func() {
		second := id.Identity("oracle-2")
		s.Require().NoError(s.registry.GrantOracle(admin, second))

		err := s.registry.VerifyCapture(second, eventID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))

		event, _ := s.registry.CaptureEvent(eventID)
		s.Equal(oracleO, *event.Verifier, "verifier must be unchanged")
		s.Equal(uint64(1000), event.Amount)
		s.Equal(uint64(1000), s.registry.GlobalTotal())
	})

	s.Run("already-verified wins over unauthorized", func() {
		err := s.registry.VerifyCapture(stranger, eventID)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))
	})
}

func (s *RegistrySuite) TestUpdateEventMetadata() {
	s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
	facilityID := s.registerFacility(ownerA)
	eventID := s.registerCapture(ownerA, facilityID, 100)

	s.Run("unknown event", func() {
		err := s.registry.UpdateEventMetadata(ownerA, 999, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeEventNotFound))
	})

	s.Run("only the facility owner may update", func() {
		for _, caller := range []id.Identity{oracleO, admin, stranger} {
			err := s.registry.UpdateEventMetadata(caller, eventID, "x")
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		}
	})

	s.Run("metadata limit counts code points", func() {
		over := make([]rune, models.MaxMetadataCodePoints+1)
		for i := range over {
			over[i] = 'é'
		}
		err := s.registry.UpdateEventMetadata(ownerA, eventID, string(over))
		s.True(dErrors.HasCode(err, dErrors.CodeMetadataTooLong))
	})

	s.Run("owner updates while unverified", func() {
		s.Require().NoError(s.registry.UpdateEventMetadata(ownerA, eventID, "recalibrated"))
		event, _ := s.registry.CaptureEvent(eventID)
		s.Equal("recalibrated", event.Metadata)
	})

	s.Run("verification freezes metadata for everyone", func() {
		s.Require().NoError(s.registry.VerifyCapture(oracleO, eventID))

		err := s.registry.UpdateEventMetadata(ownerA, eventID, "tampered")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))

		event, _ := s.registry.CaptureEvent(eventID)
		s.Equal("recalibrated", event.Metadata)
	})
}

func (s *RegistrySuite) TestEventIndexCapacity() {
	registry := New(admin, WithEventIndexCap(2))
	facilityID, err := registry.RegisterFacility(ownerA, "n", "l", "", 1)
	s.Require().NoError(err)

	hash := func(b byte) []byte {
		h := make([]byte, models.EvidenceHashSize)
		h[0] = b
		return h
	}

	_, err = registry.RegisterCapture(ownerA, facilityID, hash(1), 1, 1, "")
	s.Require().NoError(err)
	_, err = registry.RegisterCapture(ownerA, facilityID, hash(2), 1, 1, "")
	s.Require().NoError(err)

	_, err = registry.RegisterCapture(ownerA, facilityID, hash(3), 1, 1, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIndexCapacityExceeded))
	s.Equal(uint64(2), registry.EventCount())
}

// -----------------------------------------------------------------------------
// Aggregation
// -----------------------------------------------------------------------------

func (s *RegistrySuite) TestAggregation() {
	s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
	f1 := s.registerFacility(ownerA)
	f2 := s.registerFacility(ownerB)

	c1 := s.registerCapture(ownerA, f1, 1000)
	s.registerCapture(ownerA, f1, 2000) // stays unverified
	c3 := s.registerCapture(ownerB, f2, 300)

	s.Run("unverified events contribute zero", func() {
		s.Equal(uint64(0), s.registry.FacilityTotal(f1))
		s.Equal(uint64(0), s.registry.GlobalTotal())
	})

	s.Run("verification moves amounts into totals", func() {
		s.Require().NoError(s.registry.VerifyCapture(oracleO, c1))
		s.Equal(uint64(1000), s.registry.GlobalTotal())
		s.Equal(uint64(1000), s.registry.FacilityTotal(f1))

		s.Require().NoError(s.registry.VerifyCapture(oracleO, c3))
		s.Equal(uint64(1300), s.registry.GlobalTotal())
		s.Equal(uint64(300), s.registry.FacilityTotal(f2))

		// Second unverified capture still contributes nothing.
		s.Equal(uint64(1000), s.registry.FacilityTotal(f1))
	})

	s.Run("nonexistent facility totals zero", func() {
		s.Equal(uint64(0), s.registry.FacilityTotal(999))
	})

	s.Run("global total equals the sum over all facilities", func() {
		var sum uint64
		for _, facilityID := range s.registry.FacilityIDs() {
			sum += s.registry.FacilityTotal(facilityID)
		}
		s.Equal(s.registry.GlobalTotal(), sum)
	})
}

// -----------------------------------------------------------------------------
// Concurrency
// -----------------------------------------------------------------------------

func (s *RegistrySuite) TestConcurrentRegistrationsAllocateUniqueIDs() {
	facilityID := s.registerFacility(ownerA)

	const goroutines = 64
	ids := make([]id.EventID, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hash := make([]byte, models.EvidenceHashSize)
			binary.BigEndian.PutUint64(hash, uint64(n)+1<<32)
			eventID, err := s.registry.RegisterCapture(ownerA, facilityID, hash, 1, 1, "")
			s.NoError(err)
			ids[n] = eventID
		}(i)
	}
	wg.Wait()

	seen := make(map[id.EventID]bool, goroutines)
	for _, eventID := range ids {
		s.False(seen[eventID], "event ID issued twice")
		seen[eventID] = true
	}
	s.Equal(uint64(goroutines), s.registry.EventCount())
	s.Len(s.registry.FacilityEventIndex(facilityID), goroutines)
}

func (s *RegistrySuite) TestConcurrentVerificationIsExactlyOnce() {
	s.Require().NoError(s.registry.GrantOracle(admin, oracleO))
	facilityID := s.registerFacility(ownerA)
	eventID := s.registerCapture(ownerA, facilityID, 700)

	const goroutines = 32
	results := make([]error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = s.registry.VerifyCapture(oracleO, eventID)
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeAlreadyVerified))
		}
	}
	s.Equal(1, successes, "verification must commit exactly once")
	s.Equal(uint64(700), s.registry.GlobalTotal())
}
